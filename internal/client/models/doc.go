// Package models defines client-side data models used by the gophauth CLI:
// account records, credentials sent to the account service, and sessions.
package models
