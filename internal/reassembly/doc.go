// Package reassembly coalesces bursts of inbound media frames into playable audio units.
//
// The agent streams synthesized speech as binary frames with no end-of-utterance
// marker. A Reassembler appends frames to an open accumulator and re-arms a single
// quiescence timer on every frame; when the timer fires the accumulator is sealed
// into one entities.AudioUnit and handed to the sink. Network jitter longer than the
// window splits an utterance, and utterances closer than the window are merged.
package reassembly
