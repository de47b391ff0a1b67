package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mfg-ops/ordrefab/config"
	"github.com/mfg-ops/ordrefab/models"
)

// ListProducts handles GET /api/v1/products
func ListProducts(c *gin.Context) {
	var products []models.Product
	if err := config.GetDB().Order("name").Find(&products).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to retrieve products",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    products,
	})
}

// ListProductionLines handles GET /api/v1/production-lines
func ListProductionLines(c *gin.Context) {
	var lines []models.ProductionLine
	if err := config.GetDB().Order("name").Find(&lines).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to retrieve production lines",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    lines,
	})
}
