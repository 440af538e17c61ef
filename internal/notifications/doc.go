// Package notifications publishes job outcomes to ntfy.
//
// Notifier plugs into the queue as an Observer. Queue callbacks only enqueue a
// message; a single worker goroutine performs the HTTP posts so a slow ntfy
// server never stalls scheduling. When the outbox is full new messages are
// dropped and logged.
package notifications
