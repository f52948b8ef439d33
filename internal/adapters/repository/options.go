package repository

import "time"

// Default repository configuration constants.
const (
	DefaultMongoDatabase   = "ladder"
	DefaultMongoCollection = "players"
	defaultConnectTimeout  = 10 * time.Second
)

// MongoOption applies a configuration option to the MongoRepository.
type MongoOption func(*mongoSettings)

type mongoSettings struct {
	database   string
	collection string
}

// WithDatabase sets the Mongo database name.
func WithDatabase(name string) MongoOption {
	return func(s *mongoSettings) {
		if name != "" {
			s.database = name
		}
	}
}

// WithCollection sets the Mongo collection name.
func WithCollection(name string) MongoOption {
	return func(s *mongoSettings) {
		if name != "" {
			s.collection = name
		}
	}
}
