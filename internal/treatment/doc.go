// Package treatment decides, per order, whether its postal code is treated by
// a store opening.
//
// A postal code is treated by the nearest store strictly closer than the
// treatment radius; ties go to the store listed first in the store metadata.
// Stores that opened before the early-store cutoff turn their catchment into
// Early_Store controls. Postal codes without any store in range are
// Non_Store controls and are booked against their nearest store. Post is 1
// for orders placed after the assigned store opened.
package treatment
