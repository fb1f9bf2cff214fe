// Package broker owns the process's single logical connection to the message bus.
//
// A Connection hides reconnection from its callers: publishers see an error while the
// bus is unreachable, consumers are reattached after a successful reconnect, and after
// ReconnectPolicy.MaxAttempts failed dials the connection gives up until restart.
//
// Exchanges and queues are both backed by topics of the underlying session. Exchange
// subscribers filter deliveries by AMQP-style binding patterns ("lead.*", "lead.#", "#"),
// queue consumers share a consumer group named after the queue.
package broker
