// Package pipeline provides the bounded, ordered, single-producer/single-consumer
// streams that carry model I/O between backends, silos and the agent loop.
//
// A stream is consumed as an explicit iterator:
//
//	for {
//	    frag, err := s.Receive(ctx)
//	    if pipeline.IsEndOfStream(err) {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    // use frag
//	}
//
// Send is the only blocking point on the producer side; it waits while the
// buffer is full until the consumer drains a slot or the stream closes.
package pipeline
