package pg

import "errors"

var (
	ErrEmptyConnectionURL       = errors.New("empty postgres connection URL")
	ErrFailedToParseDBConfig    = errors.New("failed to parse postgres connection string")
	ErrFailedToOpenDBConnection = errors.New("failed to open postgres connection")
	ErrMigrationFailed          = errors.New("postgres migration failed")
	ErrHealthcheckFailed        = errors.New("postgres healthcheck failed")
	ErrCacheWrite               = errors.New("postgres cache write failed")
	ErrCacheRead                = errors.New("postgres cache read failed")
)
