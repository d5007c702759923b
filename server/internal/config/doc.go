// Package config loads pgilab.yaml.
//
// Config fields:
//   - Server.HTTPPort          port for the REST API, /metrics and WebSocket hub (default 8080)
//   - Server.BroadcastInterval summary push interval for UI clients (default 5s)
//   - Server.Auth              "apikey" or "none"; the key is read from Auth.KeyEnv
//   - Dataset.Path             measurements file loaded at start, saved on shutdown
//   - Dataset.Delimiter        "," ";" "|" or "\t"
//   - Dataset.Autosave         save after every mutation (default true)
//   - Dataset.Watch            reload when the file changes on disk
//   - Report                   title, default grouping and chart kind
//   - Checks                   per-record rules; absent means the default set
//   - Webhooks                 slack | teams | http targets for check events; URL from URLEnv
//   - Logging.Level            debug | info | warn | error
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, fn) reloads on save and hands fn the new Config.
package config
