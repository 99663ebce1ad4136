// Package model is the streaming client for the local generative-model
// server.
//
// A generation request is an HTTP POST whose JSON body carries the model
// identifier, the prompt, and a stream flag that is always true. The response
// body is newline-delimited JSON: each line is an independently parseable
// object that may carry an incremental content fragment and/or a terminal
// marker.
//
// The client exposes the response as a lazy, cancellable stream:
//
//	stream, err := client.Generate(ctx, "hello")
//	if err != nil {
//	    // failed before any output
//	}
//	defer stream.Close()
//	for {
//	    frag, err := stream.Read(ctx)
//	    if err == io.EOF {
//	        break // completed normally
//	    }
//	    if err != nil {
//	        // completed with partial output, then errored
//	    }
//	    // relay frag.Content
//	}
//
// A stream is restartable only by issuing a brand-new Generate call; there is
// no mid-stream resume and no automatic retry.
package model
