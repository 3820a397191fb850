package main

import _ "embed"

// defaultPayload is the client script served when script.payload_file
// is not configured. Deployments usually override it with their own
// template.
//
//go:embed payload.js
var defaultPayload []byte
