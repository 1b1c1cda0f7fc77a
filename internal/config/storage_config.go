package config

type StorageConfig interface {
	GetDataFolder() string
	GetStorageKeyPrefix() string
	GetStoreKey() string
}

type Storage struct{}

var _ StorageConfig = Storage{}

func (Storage) GetDataFolder() string {
	return GetEnv("SOLUGARDE_DATA_FOLDER", "./data")
}

func (Storage) GetStorageKeyPrefix() string {
	return GetEnv("SOLUGARDE_STORAGE_PREFIX", "solugarde_")
}

// GetStoreKey is the secret used to encrypt the durable token file. Empty disables encryption.
func (Storage) GetStoreKey() string {
	return GetEnv("SOLUGARDE_STORE_KEY", "")
}
