package domain

// KeyPrefix namespaces all keys written to the key-value store.
const KeyPrefix = "semdex:"

// NormTolerance is the maximum deviation from unit magnitude accepted at
// index build time. Inner-product search equals cosine similarity only for
// unit vectors, so anything beyond this is rejected rather than repaired.
const NormTolerance = 1e-3
