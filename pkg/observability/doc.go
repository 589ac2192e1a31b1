/*
Package observability provides tools for monitoring a running engine.

It includes prometheus collectors fed by lifecycle hooks, gauge collectors
over the session manager, and a hook combinator so hosts can stack their
own subscribers next to the metrics.
*/
package observability
