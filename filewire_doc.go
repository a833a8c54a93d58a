// Package filewire moves files between two parties over TCP with
// bit-exact delivery guarantees.
//
// A transfer splits the file into fixed-size, sequence-numbered chunks,
// streams them inside length-prefixed JSON frames, and verifies the
// reassembled bytes against a whole-file SHA-256 checksum on the
// receiving side. Lost or corrupted chunks fail the attempt; a retry
// controller restarts the whole transfer until it succeeds or the
// attempt budget runs out. A seeded fault injector can simulate packet
// loss, corruption and reordering for robustness testing.
//
// Example:
//
//	srv, err := filewire.NewServer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Close()
//
//	client, err := filewire.NewClient(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	outcome := client.SendFile(ctx, "report.bin", data)
//	if !outcome.Success {
//	    log.Fatal(outcome.Err)
//	}
package filewire
