// Package credentials is the host authorization capability: it reports
// whether a paid credential is selected and asks the user to select one.
//
// The selected key lives in the kv namespace "credentials". A key typed at
// a terminal is read without echo.
package credentials
