package config

import "time"

// StorageConfig selects where listing images are kept.
type StorageConfig struct {
	Driver string // STORAGE_DRIVER: local or s3

	LocalDir     string // STORAGE_LOCAL_DIR
	LocalBaseURL string // STORAGE_PUBLIC_URL, prefix of image URLs for local storage

	S3Bucket    string        // AWS_S3_BUCKET
	S3Region    string        // AWS_REGION
	S3Endpoint  string        // AWS_S3_ENDPOINT, for S3-compatible stores
	AccessKeyID string        // AWS_ACCESS_KEY_ID; empty uses the default chain
	SecretKey   string        // AWS_SECRET_ACCESS_KEY
	URLExpiry   time.Duration // STORAGE_URL_EXPIRY
}

func LoadStorageConfig() StorageConfig {
	sc := StorageConfig{
		Driver:       getenv("STORAGE_DRIVER", "local"),
		LocalDir:     getenv("STORAGE_LOCAL_DIR", "uploads"),
		LocalBaseURL: getenv("STORAGE_PUBLIC_URL", "/media"),
		URLExpiry:    envDur("STORAGE_URL_EXPIRY", 15*time.Minute),
	}
	if sc.Driver == "s3" {
		sc.S3Bucket = must("AWS_S3_BUCKET")
		sc.S3Region = getenv("AWS_REGION", "us-east-1")
		sc.S3Endpoint = getenv("AWS_S3_ENDPOINT", "")
		sc.AccessKeyID = getenv("AWS_ACCESS_KEY_ID", "")
		sc.SecretKey = getenv("AWS_SECRET_ACCESS_KEY", "")
	}
	return sc
}
