// Package fwsnd gives access to FireWire sound units through the ALSA
// HwDep character device.
//
// A Unit wraps one open node. Its Source reads the event records the
// kernel queues on the node and fans them out to subscribers, and feeds
// Fireworks responses to the transaction engine used by Fireworks.
// The kind specific types (Motu, Tascam, Dice, Digi00x, Fireface) add the
// ioctls and notifications of each driver.
package fwsnd
