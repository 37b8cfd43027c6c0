package objects

// Replay calls process once for every object, references first.
//
// Each pass processes the objects whose references were all processed by
// earlier passes. When a pass finds nothing ready, the remaining objects
// form a cycle or reference something outside the set; they are processed
// once each in their original order and replay ends. A process error stops
// the replay.
func Replay(objects []Object, process func(Object) error) error {
	processed := make(map[Key]bool, len(objects))
	remaining := objects
	for len(remaining) > 0 {
		var ready, rest []Object
		for _, o := range remaining {
			if o.ready(processed) {
				ready = append(ready, o)
			} else {
				rest = append(rest, o)
			}
		}
		if len(ready) == 0 {
			for _, o := range remaining {
				if err := process(o); err != nil {
					return err
				}
			}
			return nil
		}
		for _, o := range ready {
			if err := process(o); err != nil {
				return err
			}
		}
		for _, o := range ready {
			processed[o.Key] = true
		}
		remaining = rest
	}
	return nil
}
