// Package rest turns registered data models into full CRUD HTTP
// endpoints. Each resource gets a collection route and a single-record
// route; collection reads support filtering, ordering, pagination,
// field projection and response caching.
package rest
