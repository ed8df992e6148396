package tilegen

import (
	"fmt"
	"strings"
)

// Direction is an enum representing the edge of a cell, one of 'North', 'East', 'South' or 'West'.
type Direction int

const (
	North Direction = iota
	East
	South
	West
)

// AllDirections lists the directions in the order neighbors are visited.
var AllDirections = [4]Direction{North, East, South, West}

// Opposite returns the direction across the shared edge.
func (d Direction) Opposite() Direction {
	return (d + 2) % 4
}

// Delta returns the offset to the neighbor in this direction. North is towards y = 0.
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case North:
		return 0, -1
	case East:
		return 1, 0
	case South:
		return 0, 1
	default:
		return -1, 0
	}
}

func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "north", "n":
		return North, nil
	case "east", "e":
		return East, nil
	case "south", "s":
		return South, nil
	case "west", "w":
		return West, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}
