// Package publish names finished downloads and moves them from a locked
// staging directory into the shared destination directory.
//
// OutputTitle derives the published file stem from an item title. It is a
// pure function because the same stem is used both to detect a finished
// download left by an earlier run or a peer worker and to name a new one.
// Publisher wraps the download of one item in a staging directory lock and
// re-checks for a finished file once the lock is held.
package publish
