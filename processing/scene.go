package processing

// WallScene is a flat surface at distance mm.
func WallScene(distance int16) SceneFunc {
	return func(int, int, int, uint64) (int16, uint8) { return distance, StatusValid }
}

// SweepScene is a background at far mm with an obstacle at near mm that
// moves one column every period frames. The corner points report no target.
func SweepScene(near, far int16, period uint64) SceneFunc {
	if period == 0 {
		period = 1
	}
	return func(x, y, width int, frame uint64) (int16, uint8) {
		last := width - 1
		if (x == 0 || x == last) && (y == 0 || y == last) {
			return 0, 0
		}
		if uint64(x) == (frame/period)%uint64(width) {
			return near, StatusValid
		}
		return far, StatusValid
	}
}

// Scene returns a named scene: "wall" or "sweep". Unknown names yield nil.
func Scene(name string) SceneFunc {
	switch name {
	case "wall":
		return WallScene(1000)
	case "sweep":
		return SweepScene(300, 1500, 4)
	default:
		return nil
	}
}
