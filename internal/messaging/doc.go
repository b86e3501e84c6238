// Package messaging is the in-process notification channel of the writer.
//
// The writer calls Broker.HandleEvents once per write call, after every
// request of the call is persisted and before the transaction commits; an
// error fails the write. Subscribers read Messages in publish order.
package messaging
