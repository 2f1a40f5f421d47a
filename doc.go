// Package diarysync is the sync and upload core of a one-clip-a-day video
// diary client.
//
// It keeps a local cache, long-running server jobs and an unreliable network
// consistent: every request is authenticated with short-lived tokens that are
// refreshed transparently, large videos are streamed with progress and
// bounded retries, asynchronous server jobs are polled until they finish, and
// reads fall back to the last cached copy while offline.
//
// Overview
//
// Client wires everything together:
//
//   - Login, Register, Logout: credential lifecycle
//   - StartUpload, ResumeUploads, CancelUpload: video uploads
//   - Videos, Clips, Compilations: read-through repositories
//
// Quick Start
//
// Sign in and upload today's video:
//
//	cfg, err := config.Load("")
//	if err != nil {
//		log.Fatal(err)
//	}
//	client, err := diarysync.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	if _, err := client.Login(ctx, "me@example.com", "secret"); err != nil {
//		log.Fatal(err)
//	}
//	upload, err := client.StartUpload(ctx, model.DateOf(time.Now()), "today.mp4")
//	if err != nil {
//		log.Fatal(err)
//	}
//	for ev := range upload.Events() {
//		fmt.Printf("%d%%\n", ev.Percent)
//	}
//	outcome, err := upload.Wait()
//
// Wait for the server to finish processing:
//
//	for video, err := range client.Videos().PollReady(ctx, outcome.JobID) {
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Println(video.Status)
//	}
//
// Offline reads
//
// Repository reads return a Result or Page whose Stale flag is set when the
// server was unreachable and the value came from the cache. Errors the server
// did answer with are never replaced by cached data.
//
// Configuration
//
// config.Load reads settings from multiple sources:
//
//  1. Environment variables, including a .env file (highest priority)
//  2. Config file (diarysync.yaml, diarysync.yml or diarysync.json)
//  3. Default values (lowest priority)
//
// Environment variables carry the DIARYSYNC_ prefix, for example
// DIARYSYNC_BASE_URL, DIARYSYNC_DATA_DIR and DIARYSYNC_POLL_INTERVAL.
//
// Error Handling
//
// Checking for sentinel errors:
//
//	if errors.Is(err, diarysync.ErrUnauthorized) {
//		// route the user to sign in again
//	}
//
// Extracting error details:
//
//	var apiErr *diarysync.APIError
//	if errors.As(err, &apiErr) {
//		fmt.Printf("%s %s: %d\n", apiErr.Method, apiErr.Path, apiErr.StatusCode)
//	}
//
// Advanced Usage
//
// For more control, use the sub-packages directly:
//
//   - api: typed REST client
//   - auth: credential store and the refreshing RoundTripper
//   - transfer: chunked uploads
//   - poll: status polling as iter.Seq2
//   - cache, repository: local mirror and read-through policy
package diarysync
