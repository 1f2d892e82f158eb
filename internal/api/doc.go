// Package api provides the REST client for the tutoring platform endpoints
// the realtime layer depends on.
//
// Endpoints:
//   - GET    /notifications
//   - PATCH  /notifications/:id/read
//   - PATCH  /notifications/read-all
//   - DELETE /notifications
//   - GET    /messages/unread-count
//
// Every response body carries a "success" flag; success:false is an error
// even when the HTTP status is 2xx.
package api
