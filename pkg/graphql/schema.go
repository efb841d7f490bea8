// Package graphql exposes the read API as a GraphQL schema.
package graphql

import (
	"github.com/graphql-go/graphql"
)

var occupancyType = graphql.NewObject(graphql.ObjectConfig{
	Name: "Occupancy",
	Fields: graphql.Fields{
		"id":           &graphql.Field{Type: graphql.Int},
		"timestamp":    &graphql.Field{Type: graphql.String},
		"people_count": &graphql.Field{Type: graphql.Int},
	},
})

var intervalAverageType = graphql.NewObject(graphql.ObjectConfig{
	Name: "IntervalAverage",
	Fields: graphql.Fields{
		"interval_start": &graphql.Field{Type: graphql.String},
		"average_count":  &graphql.Field{Type: graphql.Float},
	},
})

var dailyAverageType = graphql.NewObject(graphql.ObjectConfig{
	Name: "DailyAverage",
	Fields: graphql.Fields{
		"date":        &graphql.Field{Type: graphql.String},
		"average":     &graphql.Field{Type: graphql.Float},
		"sampleCount": &graphql.Field{Type: graphql.Int},
	},
})

var weeklyAverageType = graphql.NewObject(graphql.ObjectConfig{
	Name: "WeeklyAverage",
	Fields: graphql.Fields{
		"dayOfWeek":   &graphql.Field{Type: graphql.Int},
		"average":     &graphql.Field{Type: graphql.Float},
		"sampleCount": &graphql.Field{Type: graphql.Int},
	},
})

var heatmapCellType = graphql.NewObject(graphql.ObjectConfig{
	Name: "HeatmapCell",
	Fields: graphql.Fields{
		"dayOfWeek":   &graphql.Field{Type: graphql.Int},
		"hour":        &graphql.Field{Type: graphql.Int},
		"average":     &graphql.Field{Type: graphql.Float},
		"sampleCount": &graphql.Field{Type: graphql.Int},
	},
})

var dayCurvePointType = graphql.NewObject(graphql.ObjectConfig{
	Name: "DayCurvePoint",
	Fields: graphql.Fields{
		"time":          &graphql.Field{Type: graphql.String},
		"people_count":  &graphql.Field{Type: graphql.Int},
		"is_prediction": &graphql.Field{Type: graphql.Boolean},
	},
})

// newSchema builds the query root over r.
func newSchema(r *resolver) (graphql.Schema, error) {
	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"occupancyHistory": &graphql.Field{
				Type: graphql.NewList(occupancyType),
				Args: graphql.FieldConfigArgument{
					"limit": &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: r.occupancyHistory,
			},
			"highestOccupancy": &graphql.Field{
				Type:    occupancyType,
				Resolve: r.highestOccupancy,
			},
			"currentOccupancy": &graphql.Field{
				Type:    occupancyType,
				Resolve: r.currentOccupancy,
			},
			"dailyAverages": &graphql.Field{
				Type: graphql.NewList(dailyAverageType),
				Args: graphql.FieldConfigArgument{
					"lastDays": &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: r.dailyAverages,
			},
			"weeklyAverages": &graphql.Field{
				Type: graphql.NewList(weeklyAverageType),
				Args: graphql.FieldConfigArgument{
					"lookbackWeeks": &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: r.weeklyAverages,
			},
			"dailyAverage": &graphql.Field{
				Type: graphql.NewList(intervalAverageType),
				Args: graphql.FieldConfigArgument{
					"date": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: r.dailyAverage,
			},
			"occupancyHeatmap": &graphql.Field{
				Type: graphql.NewList(heatmapCellType),
				Args: graphql.FieldConfigArgument{
					"lookbackWeeks": &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: r.heatmap,
			},
			"prediction": &graphql.Field{
				Type: graphql.NewList(dayCurvePointType),
				Args: graphql.FieldConfigArgument{
					"date": &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: r.prediction,
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: query})
}
