// Package transcript turns the events of a conversation into the ordered,
// typed and timed segments a chat view paints.
//
// Agent messages are split on ``` fences into prose and code parts. Each
// fenced body is also read as a possible chart directive: when its language
// tag is js, the first {...} span is parsed as JSON5 data (never executed)
// into a Chart.
//
// Every segment carries a reveal time in milliseconds. The times come from
// a Clock which starts at the first event's timestamp, jumps forward to
// later timestamps and advances CharDelay per typed character, so a typing
// animation can start each segment where the previous one finished.
// A Transcript is always rebuilt from scratch; nothing is kept between
// builds.
package transcript
