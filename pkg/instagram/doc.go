// Package instagram implements source.PostSource on top of the Instagram
// web UI.
//
// Browser drives headless Chrome through chromedp: it opens explore pages
// for tags, expands comment threads and submits the login form. Rendered
// pages are parsed with goquery by pure functions so the parsing can be
// tested against saved HTML. Image payloads are downloaded by Client over
// plain HTTP and failures come back as typed errors from pkg/errors.
package instagram
