package config

import "errors"

// Validation errors returned by Config.Validate.
var (
	// ErrMissingSearchKey is returned when no serper.dev API key is set.
	ErrMissingSearchKey = errors.New("search API key is missing: set search.api_key or PROSPECTOR_SEARCH_API_KEY")

	// ErrMissingAuthorityKey is returned when no Ahrefs API key is set.
	ErrMissingAuthorityKey = errors.New("authority API key is missing: set authority.api_key or PROSPECTOR_AUTHORITY_API_KEY")

	// ErrInvalidAuthorityRange is returned when authority_min exceeds authority_max.
	ErrInvalidAuthorityRange = errors.New("filter.authority_min must not exceed filter.authority_max")

	// ErrInvalidBacklinkThreshold is returned for a negative backlink threshold.
	ErrInvalidBacklinkThreshold = errors.New("authority.backlink_threshold must not be negative")

	// ErrInvalidResultLimit is returned for non-positive search result limits.
	ErrInvalidResultLimit = errors.New("search result limits must be positive")

	// ErrInvalidWorkers is returned when workers is below 1.
	ErrInvalidWorkers = errors.New("workers must be at least 1")

	// ErrUnknownBackend is returned for an unsupported sheets.backend.
	ErrUnknownBackend = errors.New("unknown sheets backend")

	// ErrMissingResults is returned when no results workbook is configured.
	ErrMissingResults = errors.New("sheets.results is required")

	// ErrUnknownReport is returned for an unsupported report format.
	ErrUnknownReport = errors.New("unknown report format")

	// ErrMissingCacheDir is returned when caching is on without a directory.
	ErrMissingCacheDir = errors.New("cache.dir is required when caching is enabled")
)
