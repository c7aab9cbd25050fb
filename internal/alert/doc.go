// Package alert formats build notifications and forwards them to a chat
// room through an external dispatching tool, mirroring every message to the
// structured log sink.
package alert
