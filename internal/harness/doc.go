// Package harness runs scripted reconciliation scenarios against the real
// coordinator and store.
//
// # Scenario Format
//
// Scenarios are YAML files. Each cycle edits an in-memory corpus, runs one
// reconciliation cycle and optionally checks the returned run:
//
//	name: content_change
//	description: "Editing a body produces a content_modified entry"
//	cycles:
//	  - name: seed
//	    corpus:
//	      put:
//	        - id: P-100
//	          author: Ada
//	          body: |
//	            # Hello
//	            line one
//	    expect:
//	      status: succeeded
//	      entries:
//	        - { document: P-100, kind: added, seq: 1 }
//	  - name: flaky
//	    corpus:
//	      fail_read: { P-100: "upstream returned 502" }
//	    run:
//	      fail_commit: "disk full"
//	    expect:
//	      status: failed
//	      error_code: COMMIT_ERROR
//	assertions:
//	  - type: changelog_sequence
//	    sequence: [1]
//
// # Assertion Types
//
//   - snapshot_present: the document has a snapshot, optionally from a given cycle
//   - snapshot_absent: the document has neither snapshot nor record
//   - changelog_count: the changelog holds exactly N entries
//   - changelog_sequence: the changelog seq numbers are exactly the list
//   - changelog_contains: entries exist for a document (and kind), N times if count is set
//
// # Deterministic Testing
//
// Every scenario gets a fresh in-memory SQLite store. The clock is frozen
// within a cycle and advances one minute between cycles from testutil.Epoch,
// and cycle IDs come from testutil.SequentialIDs. Transcripts are therefore
// byte-stable and compared with golden files.
package harness
