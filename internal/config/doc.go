// Package config handles configuration loading for the finbot client and its
// development server.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from FINBOT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/finbot/config.yaml
//  3. ~/.config/finbot/config.yaml
//
// A missing file is not an error; LoadOrDefault returns Default. Files ending
// in .toml are read as TOML, all others as YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	devserver:
//	  jwt_secret: "${FINBOT_JWT_SECRET}"
//
// FINBOT_API_URL, when set, overrides api.base_url after the file is read.
//
// # Configuration Sections
//
//	api:
//	  base_url: "http://localhost:8000/api/v1"
//
//	auth:
//	  login_timeout: "10s"
//	  logout_timeout: "5s"
//
//	storage:
//	  backend: "file"       # file, sqlite, memory
//	  path: ""              # file: defaults to $XDG_CONFIG_HOME/finbot/auth_tokens.json
//
//	logging:
//	  level: "warn"         # debug, info, warn, error
//	  format: "text"        # text, json
//
//	notify:
//	  dedupe_window: "3s"
//
//	devserver:
//	  addr: "127.0.0.1:8000"
//	  database_path: "finbot-dev.db"
//	  jwt_secret: "${FINBOT_JWT_SECRET}"  # at least 32 bytes
//	  access_ttl: "5m"
//	  refresh_ttl: "24h"
package config
