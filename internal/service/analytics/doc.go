// Package analytics computes campaign-level delivery and survey metrics.
//
// Reports are derived on every request from the email records and the survey
// responses of a campaign; nothing is cached or persisted. Survey responses
// are matched to the campaign through identity.Normalize, so references sent
// as bare strings and as objects with an "_id" field count the same.
package analytics
