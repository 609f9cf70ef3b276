package object_storage

import (
	"fmt"

	"github.com/promptbench/promptbench/config"

	log "github.com/sirupsen/logrus"
)

const (
	localStorageProvider = "local"
	nexusStorageProvider = "nexus"
	gcpStorageProvider   = "gcp"
)

var allStorageProviders = []string{localStorageProvider, nexusStorageProvider, gcpStorageProvider}

type PlatformConfig struct {
	Storage StorageInterface
}

func getStorageOfType(storageProvider string, c *config.PromptbenchConfig) (StorageInterface, error) {
	switch storageProvider {
	case localStorageProvider:
		return NewLocalStorage(c), nil
	case nexusStorageProvider:
		return NewNexusStorage(c), nil
	case gcpStorageProvider:
		return NewGcpStorage(c), nil
	default:
		return nil, fmt.Errorf("Unknown storage type %s, valid storage types are %v", storageProvider, allStorageProviders)
	}
}

var Client PlatformConfig

// Setup picks the artifact storage backend from the config. It has to run
// before any batch is submitted.
func Setup(c *config.PromptbenchConfig) {
	storageProvider := ""
	if c.ObjectStorage != nil {
		storageProvider = c.ObjectStorage.Provider
	}
	if storageProvider == "" {
		storageProvider = localStorageProvider
	}
	s, err := getStorageOfType(storageProvider, c)
	if err != nil {
		log.Panic(err)
	}
	Client = PlatformConfig{
		Storage: s,
	}
}
