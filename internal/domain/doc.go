// Package domain contains the core business entities, value objects, and
// domain logic of the application: topics and their canonical term sets,
// terms and review items, quota tiers and windows, tags, graph edges and
// monitoring jobs. It is independent of any storage or delivery mechanism.
package domain
