package domain

// KeyPrefix namespaces every key the service writes to Valkey.
const KeyPrefix = "dirsearch:"
