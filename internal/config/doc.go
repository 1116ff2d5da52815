// Package config handles configuration loading for cap360-server.
//
// # Overview
//
// Configuration is loaded from a YAML (.yaml, .yml) or TOML (.toml) file,
// then individual fields can be overridden from the environment. The package
// provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${CAP360_JWT_SECRET}"
//
// Unset variables expand to an empty string.
//
// # Environment Overrides
//
// After the file is parsed, variables named CAP360_<SECTION>_<FIELD> replace
// the file value, for example:
//
//	CAP360_AUTH_JWT_SECRET=...
//	CAP360_DATABASE_DRIVER=postgres
//	CAP360_DATABASE_DSN=postgres://...
//	CAP360_CORS_ALLOWED_ORIGINS=https://a.example.com,https://b.example.com
//
// The binaries also load a .env file from the working directory when present.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	  grpc_addr: "0.0.0.0:50051"
//	  read_header_timeout: "10s"
//
//	tailscale:
//	  enabled: false
//	  hostname: "cap360"
//	  auth_key: "${TS_AUTHKEY}"
//	  state_dir: "./tsnet-state"
//	  ephemeral: false
//	  https: false
//	  funnel: false
//
//	database:
//	  driver: "sqlite"        # sqlite | sqlite3 | postgres | mongo
//	  path: "./cap360.db"     # sqlite drivers
//	  dsn: ""                 # postgres and mongo
//	  mongo_database: "cap360"
//
//	auth:
//	  jwt_secret: "${CAP360_JWT_SECRET}"  # at least 32 bytes
//	  token_ttl: "24h"
//
//	provisioning:
//	  rollback_on_failure: false
//	  role_grant_policy: "append"  # append | skip_existing
//
//	cors:
//	  allowed_origins: ["*"]
//
//	logging:
//	  level: "info"   # debug | info | warn | error
//	  format: "text"  # text | json
//
//	telemetry:
//	  enabled: false
//	  endpoint: "http://localhost:4318"
//	  service_name: "cap360-server"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax (ns, us, ms, s, m, h).
package config
