// README: zap logger construction shared by the API and the bench runner.
package infra

import "go.uber.org/zap"

func NewLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
