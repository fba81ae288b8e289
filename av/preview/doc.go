// Package preview provides sink decode hooks for monitoring a stream.
//
// OpusPreview decodes Opus audio with pion/opus and saves it as a WAVE
// file. SnapshotPreview reassembles raw YUV 4:2:0 video frames and saves
// the latest picture as a bitmap. Both expose a Decode method with the
// signature of sink.DecodeHook:
//
//	snap, err := preview.NewSnapshotPreview(afero.NewOsFs(), "live.bmp", 320, 240, 25)
//	if err != nil {
//	    return err
//	}
//	s.SetDecodeHook(snap.Decode)
package preview
