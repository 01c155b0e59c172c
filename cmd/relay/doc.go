// Package main runs the encrypted chat relay.
//
// The relay accepts WebSocket connections at /ws. Each connection signs up
// or logs in, receives a fresh RSA public key, wraps an AES-256 session key
// with it and then exchanges "ivHex:cipherHex" envelopes. The relay opens
// every envelope with the sender's key and seals it again with each
// recipient's key, so no two connections share key material.
//
// Configuration is a TOML file passed with -f:
//
//	[Server]
//	  Address = ":8080"
//	  DataDir = "/var/lib/securechat"
//	  MetricsAddress = "127.0.0.1:9100"
//
//	[Logging]
//	  Level = "NOTICE"
//
//	[Storage]
//	  Backend = "bolt"
//	  ChatLogDir = "logs"
//
//	[Discovery]
//	  MDNS = true
//
// Signals
//
//   - SIGINT, SIGTERM  Close every connection and exit
//   - SIGHUP           Reopen the log file
package main
