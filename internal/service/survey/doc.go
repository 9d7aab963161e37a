// Package survey accepts and lists survey responses. The campaign reference
// on a response is stored exactly as received; matching it to a campaign is
// the analytics package's job.
package survey
