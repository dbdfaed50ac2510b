// Package audit buffers security events and delivers them to a [Sink] off the
// request path.
//
// [Dispatcher] owns buffering and delivery. It does not decide which events
// exist; the engine and the flow functions do. Sinks shipped here cover tests
// ([ChannelSink]), line-delimited JSON ([JSONWriterSink]) and structured logs
// ([LoggerSink]).
package audit
