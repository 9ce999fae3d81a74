/*
vidtrack maintains persistent identities for objects detected in video.

Per frame detections from an external detector (bounding box, confidence and
class) are associated with existing tracks in several stages, high confidence
detections first and low confidence detections only to recover confirmed
tracks, so objects keep their track ID through short dropouts and confidence
dips.

The tracking core lives in the tracker subdirectory.  The session package
applies the cost control policy around it (frame sampling, confidence
filtering and per frame caps) and aggregates per video statistics.  This
package provides a Pool of reusable sessions for tracking several videos
concurrently.

See example code and usage in the example subdirectory.
*/
package vidtrack
