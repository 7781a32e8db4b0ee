/*
Package audit delivers authentication audit events to sinks.

Publisher implements ports.AuditPublisher: it decides per realm which topics and
event names are audited and hands accepted events to a Sink. Sinks write JSON lines
(JSONWriterSink), feed a channel (ChannelSink) or buffer events for a background
goroutine (Dispatcher), so a slow audit backend never stalls a login.
*/
package audit
