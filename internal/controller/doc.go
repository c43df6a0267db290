// Package controller is the worker's proxy to the controlling process.
//
// The controller owns every decision (URL, destination, mode, resolution,
// credentials) and receives progress and error notifications. Each capability
// is an explicit method on the Controller interface; Client implements it
// over newline-delimited JSON where the worker always initiates and blocks
// for the reply. A missing or malformed reply is a services.ErrProtocol
// error, which is fatal to the worker.
package controller
