// Package mongodb stores casbin rules in a MongoDB collection.
package mongodb

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

const redactedPassword = "[REDACTED]"

// Options defines the connection settings for MongoDB.
type Options struct {
	URI        string `json:"uri" mapstructure:"uri"`
	Host       string `json:"host" mapstructure:"host"`
	Port       int    `json:"port" mapstructure:"port"`
	Username   string `json:"username" mapstructure:"username"`
	Password   string `json:"-" mapstructure:"password"` // prefer MONGODB_PASSWORD
	Database   string `json:"database" mapstructure:"database"`
	Collection string `json:"collection" mapstructure:"collection"`

	MaxPoolSize            uint64        `json:"max-pool-size" mapstructure:"max-pool-size"`
	MinPoolSize            uint64        `json:"min-pool-size" mapstructure:"min-pool-size"`
	MaxConnIdleTime        time.Duration `json:"max-conn-idle-time" mapstructure:"max-conn-idle-time"`
	ConnectTimeout         time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	ServerSelectionTimeout time.Duration `json:"server-selection-timeout" mapstructure:"server-selection-timeout"`

	ReplicaSet string `json:"replica-set" mapstructure:"replica-set"`
	AuthSource string `json:"auth-source" mapstructure:"auth-source"`
	Direct     bool   `json:"direct" mapstructure:"direct"`
}

// NewOptions returns Options with default values.
func NewOptions() *Options {
	return &Options{
		Host:                   "127.0.0.1",
		Port:                   27017,
		Database:               "casbin",
		Collection:             "casbin",
		MaxPoolSize:            100,
		MinPoolSize:            0,
		MaxConnIdleTime:        5 * time.Minute,
		ConnectTimeout:         10 * time.Second,
		ServerSelectionTimeout: 30 * time.Second,
		AuthSource:             "admin",
	}
}

// Complete reads the password from MONGODB_PASSWORD when none is set.
func (o *Options) Complete() {
	if o.Password == "" {
		o.Password = os.Getenv("MONGODB_PASSWORD")
	}
}

// Validate checks if the options are valid.
func (o *Options) Validate() error {
	if o.Database == "" {
		return fmt.Errorf("mongodb database is required")
	}
	if o.Collection == "" {
		return fmt.Errorf("mongodb collection is required")
	}
	if o.URI != "" {
		return nil
	}
	if o.Host == "" {
		return fmt.Errorf("mongodb host is required when uri is not provided")
	}
	if o.Port <= 0 || o.Port > 65535 {
		return fmt.Errorf("mongodb port must be between 1 and 65535")
	}
	return nil
}

// String returns a representation safe for logging.
func (o *Options) String() string {
	password := ""
	if o.Password != "" {
		password = redactedPassword
	}
	return fmt.Sprintf("MongoDB{host=%s, port=%d, user=%s, password=%s, database=%s, collection=%s}",
		o.Host, o.Port, o.Username, password, o.Database, o.Collection)
}

// AddFlags adds flags for the options to fs.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.URI, "mongodb.uri", o.URI, "MongoDB URI (mongodb://...). Overrides host, port and credentials.")
	fs.StringVar(&o.Host, "mongodb.host", o.Host, "MongoDB host.")
	fs.IntVar(&o.Port, "mongodb.port", o.Port, "MongoDB port.")
	fs.StringVar(&o.Username, "mongodb.username", o.Username, "MongoDB username.")
	fs.StringVar(&o.Database, "mongodb.database", o.Database, "Database holding the rule collection.")
	fs.StringVar(&o.Collection, "mongodb.collection", o.Collection, "Collection holding the rules.")
	fs.StringVar(&o.ReplicaSet, "mongodb.replica-set", o.ReplicaSet, "MongoDB replica set name.")
	fs.StringVar(&o.AuthSource, "mongodb.auth-source", o.AuthSource, "MongoDB authentication source.")
	fs.BoolVar(&o.Direct, "mongodb.direct", o.Direct, "Connect directly to the given host.")
}
