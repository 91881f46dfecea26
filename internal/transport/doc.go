// Package transport delivers items to the reader.
//
// A Transport is the outbound half: it arms a single fire at a wall-clock
// time, delivers immediately, cancels and lists what is armed. The inbound
// half is a channel of Fired confirmations, read by the engine.
//
// Timer is the in-process implementation. It hands each due item to a
// Presenter (a writer, or Telegram via the telegram subpackage).
package transport
