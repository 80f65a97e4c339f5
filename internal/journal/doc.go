// Package journal persists what the synchronizer did: every settled
// mutation (toggle, batch toggle, scene, routine) and every backend resync.
//
// SQLiteRepository implements devicesync.Recorder over the tables created
// by the migrations package. Timestamps are stored as RFC3339 UTC text so
// that string ordering matches time ordering.
//
// Pruner deletes rows older than the configured retention on a cron
// schedule.
package journal
