// Package pipeline runs an ingestion pass over a content store.
//
// A run has three phases, each enabled on its own:
//
//   - Discover asks the PostSource for new posts per tag, skipping posts
//     already in the store, stamps each with its company and upserts it.
//   - FillImages fetches each post's image with a bounded, fixed-delay
//     retry and stores it through an ImageSink.
//   - FillComments fetches comments, filters short ones and appends the
//     rest to the stored post.
//
// When discovery runs, the fill phases work on the posts it accepted.
// Otherwise they resume from the store: FillImages from posts without an
// image file and FillComments from posts without comments. Every phase
// flushes the store when it ends, including when it fails.
//
// Usage:
//
//	p := pipeline.New(store, browser, manager, pipeline.OptionsFromConfig(cfg), log, m)
//	res, err := p.Run(ctx, groups)
package pipeline
