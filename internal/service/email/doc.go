// Package email registers outbound emails and drives their delivery status.
//
// Every registered email receives its tracking token before Register
// returns, so the message can never leave the system without one.
package email
